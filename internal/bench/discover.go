package bench

import (
	"io/fs"
	"path/filepath"
	"sort"

	"detectbench/pkg/utils"
)

// Discover lists jpg/jpeg/png files under root, recursively, in lexical
// path order.
func Discover(root string) ([]string, error) {
	var images []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if utils.AllowedImage(path) {
			images = append(images, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(images)
	return images, nil
}
