package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

func promptAdmin(in io.Reader, out io.Writer) (string, error) {
	if _, err := fmt.Fprint(out, "Enter bot admin telegram username: "); err != nil {
		return "", err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
