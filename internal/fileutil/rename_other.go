//go:build !linux

package fileutil

func renameExclusive(src, dst string) error {
	return renameChecked(src, dst)
}
