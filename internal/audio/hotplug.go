package audio

import (
	"strconv"
	"strings"
)

// cardSelector matches udev removal events of the card behind an ALSA
// device name. index < 0 matches any card.
type cardSelector struct {
	index int
}

// parseCard extracts the card index from names like "hw:1,0", "plughw:2"
// or "hw:CARD=1,DEV=0". Named or default devices select any card.
func parseCard(device string) cardSelector {
	_, rest, ok := strings.Cut(device, ":")
	if !ok {
		return cardSelector{index: -1}
	}
	field, _, _ := strings.Cut(rest, ",")
	field = strings.TrimPrefix(field, "CARD=")
	n, err := strconv.Atoi(field)
	if err != nil || n < 0 {
		return cardSelector{index: -1}
	}
	return cardSelector{index: n}
}

func (c cardSelector) matches(env map[string]string) bool {
	if env["SUBSYSTEM"] != "sound" {
		return false
	}
	path := env["DEVPATH"]
	base := path[strings.LastIndex(path, "/")+1:]
	num, ok := strings.CutPrefix(base, "card")
	if !ok {
		return false
	}
	if c.index < 0 {
		return true
	}
	n, err := strconv.Atoi(num)
	return err == nil && n == c.index
}
