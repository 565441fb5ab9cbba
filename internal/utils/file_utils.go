package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func CheckIsDir(fd string) (bool, string) {
	fs, err := os.Stat(fd)
	if err != nil {
		return false, fd + " not exists"
	}
	if fs.IsDir() {
		return true, ""
	} else {
		return false, fd + " is not a dir"
	}
}

// IsFile checks whether the path is a file,
// it returns false when it's a directory or does not exist.
func IsFile(fp string) bool {
	f, e := os.Stat(fp)
	if e != nil {
		return false
	}
	return !f.IsDir()
}

// GetLogNameAndIndex splits "mysql-bin.000003" into "mysql-bin" and 3.
func GetLogNameAndIndex(binlog string) (string, int, error) {
	binlogFile := filepath.Base(binlog)
	idx := strings.LastIndexByte(binlogFile, '.')
	if idx < 0 {
		return "", 0, fmt.Errorf("binlog file %s has no index suffix", binlogFile)
	}
	n, err := strconv.ParseUint(binlogFile[idx+1:], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("parse binlog file index of %s: %w", binlogFile, err)
	}
	return binlogFile[:idx], int(n), nil
}

func GetNextBinlog(baseName string, indx *int) string {
	*indx++
	idxStr := fmt.Sprintf("%06d", *indx)
	return baseName + "." + idxStr
}
