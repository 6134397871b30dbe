package main

import "strings"

// lineAssembler turns arbitrarily chunked appended text into complete lines.
// A trailing fragment without a newline is held until the rest arrives.
type lineAssembler struct {
	partial strings.Builder
}

func (a *lineAssembler) Feed(text string) []string {
	if text == "" {
		return nil
	}
	a.partial.WriteString(text)
	buffered := a.partial.String()

	cut := strings.LastIndexByte(buffered, '\n')
	if cut < 0 {
		return nil
	}
	a.partial.Reset()
	a.partial.WriteString(buffered[cut+1:])
	return strings.Split(buffered[:cut], "\n")
}

// Pending returns the buffered fragment that has not been terminated yet.
func (a *lineAssembler) Pending() string {
	return a.partial.String()
}
