package config

import (
	"os"
	"strings"
)

// fillFromCookieFile parses a Netscape-format cookie dump and fills the
// token fields that were left empty in the config.
func (t *Token) fillFromCookieFile() error {
	data, err := os.ReadFile(t.CookieFilePath)
	if err != nil {
		return err
	}

	cookies := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) >= 7 {
			cookies[parts[5]] = parts[6]
		}
	}

	fill := func(dst *string, name string) {
		if *dst == "" {
			*dst = cookies[name]
		}
	}
	fill(&t.SessData, "SESSDATA")
	fill(&t.BiliJct, "bili_jct")
	fill(&t.Buvid3, "buvid3")
	fill(&t.Buvid4, "buvid4")
	fill(&t.DedeUserID, "DedeUserID")
	fill(&t.AcTimeValue, "ac_time_value")
	return nil
}
