package translate

import "context"

type Fake struct {
	text  string
	err   error
	Calls int
}

func NewFake(text string, err error) *Fake {
	return &Fake{text: text, err: err}
}

func (f *Fake) Translate(_ context.Context, _ string) (string, error) {
	f.Calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}
