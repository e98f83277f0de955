// Package dtmf defines the keypad-entry type shared by the telephony
// serializers. DTMF digits arrive as strings on the wire; ParseKey maps them
// onto the closed Key set so downstream code never sees a raw digit string.
package dtmf

import "fmt"

// Key is a single telephone keypad entry.
type Key string

const (
	Key0     Key = "0"
	Key1     Key = "1"
	Key2     Key = "2"
	Key3     Key = "3"
	Key4     Key = "4"
	Key5     Key = "5"
	Key6     Key = "6"
	Key7     Key = "7"
	Key8     Key = "8"
	Key9     Key = "9"
	KeyStar  Key = "*"
	KeyPound Key = "#"
	KeyA     Key = "A"
	KeyB     Key = "B"
	KeyC     Key = "C"
	KeyD     Key = "D"
)

// ParseKey maps a wire digit string onto a [Key]. It returns an error for
// anything outside the sixteen-entry keypad alphabet.
func ParseKey(digit string) (Key, error) {
	switch k := Key(digit); k {
	case Key0, Key1, Key2, Key3, Key4, Key5, Key6, Key7, Key8, Key9,
		KeyStar, KeyPound, KeyA, KeyB, KeyC, KeyD:
		return k, nil
	}
	return "", fmt.Errorf("dtmf: invalid digit %q", digit)
}
