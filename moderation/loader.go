package moderation

import (
	"bufio"
	"final-draft/errors"
	"io/fs"
	"path"
	"strings"
)

// CensoredData carries the result of the loading process including metadata for logging.
type CensoredData struct {
	Words     []string
	Languages []string
}

// CensoredLoader reads blacklisted words from a directory of "<lang>.txt" files, one word per line.
type CensoredLoader struct {
	fsys fs.FS
}

func NewCensoredLoader(fsys fs.FS) *CensoredLoader {
	return &CensoredLoader{fsys: fsys}
}

// LoadAll parses every .txt file of dir into a list of unique words.
func (l *CensoredLoader) LoadAll(dir string) (*CensoredData, error) {
	entries, err := fs.ReadDir(l.fsys, dir)
	if err != nil {
		return nil, err
	}

	var languages []string
	uniqueWords := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		if err = l.readWords(path.Join(dir, entry.Name()), uniqueWords); err != nil {
			return nil, err
		}
	}

	if len(uniqueWords) == 0 {
		return nil, errors.ErrEmptyWords
	}

	words := make([]string, 0, len(uniqueWords))
	for w := range uniqueWords {
		words = append(words, w)
	}
	return &CensoredData{Words: words, Languages: languages}, nil
}

func (l *CensoredLoader) readWords(name string, into map[string]struct{}) error {
	f, err := l.fsys.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	// The scanner handles both \n and \r\n line endings
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			into[line] = struct{}{}
		}
	}
	return scanner.Err()
}
