/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

package migrate

import (
	"crypto/md5" //nolint:gosec // MD5 is a content fingerprint here, not a security measure.
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Script is a versioned SQL file found in the migrations directory.
type Script struct {
	Version  int
	Filename string
	Checksum string
	SQL      string
}

// Record is a row of the ledger table.
// It is created when a script is seen for the first time and is updated once the script is applied successfully.
type Record struct {
	Version   int
	Filename  string
	Checksum  string
	CreatedAt time.Time
	Success   bool
}

// Version returns the version encoded in the script filename:
// the integer value of the first run of decimal digits ("2_add_index.sql" -> 2, "v10_users.sql" -> 10).
// A filename without digits, or with version 0, gives an error with ErrorCodeFilename.
func Version(filename string) (int, error) {
	start := -1
	end := len(filename)
	for i := 0; i < len(filename); i++ {
		isDigit := filename[i] >= '0' && filename[i] <= '9'
		if start == -1 {
			if isDigit {
				start = i
			}
			continue
		}
		if !isDigit {
			end = i
			break
		}
	}
	if start == -1 {
		return 0, newError(ErrorCodeFilename, filename, nil)
	}
	version, err := strconv.Atoi(filename[start:end])
	if err != nil {
		return 0, newError(ErrorCodeFilename, filename, err)
	}
	if version == 0 {
		return 0, newError(ErrorCodeFilename, filename, nil)
	}
	return version, nil
}

// Checksum returns hex-encoded MD5 of the script content.
func Checksum(content []byte) string {
	sum := md5.Sum(content) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// NewScript makes a Script from the file name and its raw content.
func NewScript(filename string, content []byte) (Script, error) {
	version, err := Version(filename)
	if err != nil {
		return Script{}, err
	}
	return Script{
		Version:  version,
		Filename: filename,
		Checksum: Checksum(content),
		SQL:      string(content),
	}, nil
}

func (s Script) String() string {
	return fmt.Sprintf("%s (version %d)", s.Filename, s.Version)
}
