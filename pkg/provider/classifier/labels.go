package classifier

import "strconv"

// Label names one model output.
type Label struct {
	// Name is reported in events and substituted into commands.
	Name string `yaml:"name"`

	// Code is the ISO 639-1 code of the language, empty for non-language
	// outputs such as noise. Backends that detect languages by code (whisper)
	// use it to find the output index.
	Code string `yaml:"code"`
}

// Labels maps output indices to labels.
type Labels []Label

// DefaultLabels is the eight-output map of the bundled language model.
func DefaultLabels() Labels {
	return Labels{
		{Name: "noise"},
		{Name: "chinese", Code: "zh"},
		{Name: "english", Code: "en"},
		{Name: "french", Code: "fr"},
		{Name: "german", Code: "de"},
		{Name: "italian", Code: "it"},
		{Name: "russian", Code: "ru"},
		{Name: "spanish", Code: "es"},
	}
}

// Name returns the name of output i, or i in decimal if it is unmapped.
func (l Labels) Name(i int) string {
	if i >= 0 && i < len(l) && l[i].Name != "" {
		return l[i].Name
	}
	return strconv.Itoa(i)
}

// Names returns the label names in index order.
func (l Labels) Names() []string {
	out := make([]string, len(l))
	for i := range l {
		out[i] = l.Name(i)
	}
	return out
}

// IndexOfCode returns the index of the label with the given code, or -1.
func (l Labels) IndexOfCode(code string) int {
	if code == "" {
		return -1
	}
	for i, lb := range l {
		if lb.Code == code {
			return i
		}
	}
	return -1
}
