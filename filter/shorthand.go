package filter

import (
	"fmt"
	"regexp"
	"strings"
)

type shorthandRule struct {
	pattern *regexp.Regexp
	replace func(m []string) string
}

var (
	comparison = `(>=|<=|>|<|=)?(\d+(?:\.\d+)?)`

	shorthandRules = []shorthandRule{
		// kind:movie or kind!:tv
		{regexp.MustCompile(`\bkind(!?):"?(movie|tv)"?`), func(m []string) string {
			return fmt.Sprintf(`(Kind %s "%s")`, equality(m[1]), m[2])
		}},
		// title:"dune" or title!:"dune"
		{regexp.MustCompile(`\btitle(!?):"([^"]+)"`), func(m []string) string {
			if m[1] == "!" {
				return fmt.Sprintf(`not hasText(Title, "%s")`, m[2])
			}
			return fmt.Sprintf(`hasText(Title, "%s")`, m[2])
		}},
		// year:>2000
		{regexp.MustCompile(`\byear:` + comparison), func(m []string) string {
			return fmt.Sprintf(`(Year %s %s)`, operator(m[1]), m[2])
		}},
		// rating:>=7.5
		{regexp.MustCompile(`\brating:` + comparison), func(m []string) string {
			return fmt.Sprintf(`(Rating %s %s)`, operator(m[1]), m[2])
		}},
		// votes:>100
		{regexp.MustCompile(`\bvotes:` + comparison), func(m []string) string {
			return fmt.Sprintf(`(Votes %s %s)`, operator(m[1]), m[2])
		}},
		// rated:true
		{regexp.MustCompile(`\brated:(true|false)`), func(m []string) string {
			return fmt.Sprintf(`(HasRating == %s)`, m[1])
		}},
		// released_after:"2020-01-01"
		{regexp.MustCompile(`\breleased_after:"([^"]+)"`), func(m []string) string {
			return fmt.Sprintf(`releasedAfter("%s")`, m[1])
		}},
		// released_before:"2020-01-01"
		{regexp.MustCompile(`\breleased_before:"([^"]+)"`), func(m []string) string {
			return fmt.Sprintf(`releasedBefore("%s")`, m[1])
		}},
	}

	shorthandField = regexp.MustCompile(`\b(kind|title|year|rating|votes|rated|released_after|released_before)!?:`)
	leftoverField  = regexp.MustCompile(`\b[a-z_]+!?:`)
	quoted         = regexp.MustCompile(`"[^"]*"`)
)

// ConvertShorthand converts shorthand syntax to an expr expression
func ConvertShorthand(shorthand string) (string, error) {
	if strings.TrimSpace(shorthand) == "" {
		return "", nil
	}

	// Logical operators. Comparisons below are parenthesized since not binds
	// tighter than == in expr.
	converted := strings.ReplaceAll(shorthand, " AND ", " and ")
	converted = strings.ReplaceAll(converted, " OR ", " or ")
	converted = strings.ReplaceAll(converted, "NOT ", "not ")

	for _, rule := range shorthandRules {
		converted = rule.pattern.ReplaceAllStringFunc(converted, func(match string) string {
			return rule.replace(rule.pattern.FindStringSubmatch(match))
		})
	}

	if field := leftoverField.FindString(quoted.ReplaceAllString(converted, `""`)); field != "" {
		return "", fmt.Errorf("unsupported shorthand term %q", strings.TrimRight(field, "!:"))
	}

	return converted, nil
}

// IsShorthand checks if a filter uses the shorthand syntax
func IsShorthand(filter string) bool {
	return shorthandField.MatchString(filter)
}

func equality(negate string) string {
	if negate == "!" {
		return "!="
	}
	return "=="
}

func operator(op string) string {
	if op == "" || op == "=" {
		return "=="
	}
	return op
}
