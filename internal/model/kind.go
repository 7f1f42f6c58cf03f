package model

import "errors"

// KindOf returns the taxonomy name carried by the first error in err's
// chain that has one, or "Internal" if none does.
func KindOf(err error) string {
	var k interface{ Kind() string }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return "Internal"
}
