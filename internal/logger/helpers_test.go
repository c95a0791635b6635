package logger

import "os"

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path) //nolint:gosec // test path
	return string(b), err
}
