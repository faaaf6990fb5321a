package calls

import (
	"strconv"
	"strings"

	"github.com/tomyedwab/sqlcustom/coerce"
)

// parseOptionList parses a comma separated option list such as
// "1-beguid-string,2-bool". Each token is split on '-' into sub-tokens that are
// either transform names or a numeric index. Unknown sub-tokens are returned
// as problems.
//
// For input lists (keepAll false) tokens without an index are dropped. Output
// lists keep every token in position, even when a sub-token failed to parse.
func parseOptionList(list string, keepAll bool) (opts []coerce.Options, problems []string) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	for _, token := range strings.Split(list, ",") {
		token = strings.TrimSpace(token)
		o := coerce.NewOptions()
		for _, sub := range strings.Split(token, "-") {
			if o.Set(sub) {
				continue
			}
			n, err := strconv.Atoi(strings.TrimSpace(sub))
			if err != nil || n < 0 {
				problems = append(problems, "unknown option "+strconv.Quote(sub)+" in "+strconv.Quote(token))
				continue
			}
			o.Index = n
		}
		if keepAll || o.HasIndex() {
			opts = append(opts, o)
		}
	}
	return opts, problems
}

func highestIndex(opts []coerce.Options) int {
	highest := 0
	for _, o := range opts {
		if o.Index > highest {
			highest = o.Index
		}
	}
	return highest
}
