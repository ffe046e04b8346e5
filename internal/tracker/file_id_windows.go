//go:build windows

package tracker

import (
	"errors"
	"os"
)

func GetFileID(info os.FileInfo) (string, error) {
	return "", errors.New("unsupported OS: windows")
}
