// Package clipboard puts history text on the system clipboard.
package clipboard

import (
	"fmt"

	cb "github.com/atotto/clipboard"
)

func Copy(text string) error {
	if err := cb.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard copy failed: %w", err)
	}
	return nil
}
