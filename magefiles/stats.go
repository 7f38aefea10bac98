//go:build mage

package main

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

type lineCount struct {
	prod, test int
}

// Stats prints Go lines of code per package, split into production and test.
func Stats() error {
	counts := map[string]*lineCount{}
	err := filepath.Walk(".", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			switch path {
			case "vendor", ".git", binaryDir, "magefiles", "_examples":
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		n, err := countLines(path)
		if err != nil {
			return nil
		}
		pkg := filepath.Dir(path)
		c, ok := counts[pkg]
		if !ok {
			c = &lineCount{}
			counts[pkg] = c
		}
		if strings.HasSuffix(path, "_test.go") {
			c.test += n
		} else {
			c.prod += n
		}
		return nil
	})
	if err != nil {
		return err
	}

	pkgs := make([]string, 0, len(counts))
	for p := range counts {
		pkgs = append(pkgs, p)
	}
	sort.Strings(pkgs)

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Package", "Production", "Tests"})
	var prod, test int
	for _, p := range pkgs {
		c := counts[p]
		tw.AppendRow(table.Row{p, c.prod, c.test})
		prod += c.prod
		test += c.test
	}
	tw.AppendFooter(table.Row{"Total", prod, test})
	tw.Render()
	return nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}
