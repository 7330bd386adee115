// Package chunker cuts markdown into retrieval-sized chunks with exact
// source offsets, heading paths, and deterministic section anchors.
package chunker

import (
	"regexp"
	"strings"
)

// BlockType classifies a parsed markdown block.
type BlockType string

const (
	BlockHeading   BlockType = "heading"
	BlockParagraph BlockType = "paragraph"
	BlockList      BlockType = "list"
	BlockCodeFence BlockType = "code_fence"
	BlockTable     BlockType = "table"
	BlockBlank     BlockType = "blank"
)

// Block is a contiguous source span with its heading context.
type Block struct {
	Type        BlockType
	StartChar   int
	EndChar     int
	HeadingPath []string
	Level       int // heading blocks only
}

var (
	headingRe  = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	listItemRe = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s+`)
	tableSepRe = regexp.MustCompile(`^\s*\|?[\s:|-]+\|[\s:|-]*$`)
)

type line struct {
	text  string
	start int
	end   int // exclusive, includes trailing newline
}

func splitLines(content string) []line {
	var lines []line
	start := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			lines = append(lines, line{text: content[start:i], start: start, end: i + 1})
			start = i + 1
		}
	}
	if start < len(content) {
		lines = append(lines, line{text: content[start:], start: start, end: len(content)})
	}
	return lines
}

type headingFrame struct {
	level int
	text  string
}

// ParseBlocks parses markdown into a flat block sequence. Offsets are exact:
// concatenating block spans reproduces the source.
func ParseBlocks(content string) []Block {
	lines := splitLines(content)
	var blocks []Block
	var stack []headingFrame

	snapshot := func() []string {
		path := make([]string, len(stack))
		for i, f := range stack {
			path[i] = f.text
		}
		return path
	}

	i := 0
	for i < len(lines) {
		ln := lines[i]
		trimmed := strings.TrimSpace(ln.text)

		switch {
		case trimmed == "":
			start := ln.start
			end := ln.end
			for i+1 < len(lines) && strings.TrimSpace(lines[i+1].text) == "" {
				i++
				end = lines[i].end
			}
			blocks = append(blocks, Block{
				Type: BlockBlank, StartChar: start, EndChar: end, HeadingPath: snapshot(),
			})
			i++

		case isFenceOpen(trimmed):
			marker := fenceMarker(trimmed)
			start := ln.start
			end := ln.end
			j := i + 1
			for j < len(lines) {
				end = lines[j].end
				if isFenceClose(strings.TrimSpace(lines[j].text), marker) {
					break
				}
				j++
			}
			blocks = append(blocks, Block{
				Type: BlockCodeFence, StartChar: start, EndChar: end, HeadingPath: snapshot(),
			})
			i = j + 1

		case headingRe.MatchString(trimmed):
			m := headingRe.FindStringSubmatch(trimmed)
			level := len(m[1])
			text := strings.TrimSpace(m[2])

			for len(stack) > 0 && stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, headingFrame{level: level, text: text})

			blocks = append(blocks, Block{
				Type: BlockHeading, StartChar: ln.start, EndChar: ln.end,
				HeadingPath: snapshot(), Level: level,
			})
			i++

		case isTableStart(lines, i):
			start := ln.start
			end := ln.end
			j := i + 1
			for j < len(lines) && strings.Contains(lines[j].text, "|") &&
				strings.TrimSpace(lines[j].text) != "" {
				end = lines[j].end
				j++
			}
			blocks = append(blocks, Block{
				Type: BlockTable, StartChar: start, EndChar: end, HeadingPath: snapshot(),
			})
			i = j

		case listItemRe.MatchString(ln.text):
			start := ln.start
			end := ln.end
			j := i + 1
			for j < len(lines) {
				next := lines[j].text
				if strings.TrimSpace(next) == "" {
					break
				}
				if !listItemRe.MatchString(next) && !isIndented(next) {
					break
				}
				end = lines[j].end
				j++
			}
			blocks = append(blocks, Block{
				Type: BlockList, StartChar: start, EndChar: end, HeadingPath: snapshot(),
			})
			i = j

		default:
			start := ln.start
			end := ln.end
			j := i + 1
			for j < len(lines) {
				next := strings.TrimSpace(lines[j].text)
				if next == "" || headingRe.MatchString(next) || isFenceOpen(next) ||
					listItemRe.MatchString(lines[j].text) || isTableStart(lines, j) {
					break
				}
				end = lines[j].end
				j++
			}
			blocks = append(blocks, Block{
				Type: BlockParagraph, StartChar: start, EndChar: end, HeadingPath: snapshot(),
			})
			i = j
		}
	}

	return blocks
}

func isFenceOpen(trimmed string) bool {
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

func fenceMarker(trimmed string) string {
	if strings.HasPrefix(trimmed, "~~~") {
		return "~~~"
	}
	return "```"
}

func isFenceClose(trimmed, marker string) bool {
	if !strings.HasPrefix(trimmed, marker) {
		return false
	}
	rest := strings.TrimLeft(trimmed, string(marker[0]))
	return strings.TrimSpace(rest) == ""
}

// isTableStart detects a header row followed by a dash separator row.
func isTableStart(lines []line, i int) bool {
	if !strings.Contains(lines[i].text, "|") {
		return false
	}
	if i+1 >= len(lines) {
		return false
	}
	sep := lines[i+1].text
	return tableSepRe.MatchString(sep) && strings.Contains(sep, "-")
}

func isIndented(s string) bool {
	return strings.HasPrefix(s, " ") || strings.HasPrefix(s, "\t")
}

func samePath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
