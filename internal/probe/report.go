package probe

import (
	"fmt"
	"strings"
)

// Report formats the per-column sample statistics as a tab-separated table.
func (r Result) Report() string {
	if r.Records == 0 {
		return fmt.Sprintf("probe report:\ttable=%s objects=%d sampled_records=0", r.Table, r.Objects)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "probe report:\ttable=%s objects=%d sampled_records=%d\n", r.Table, r.Objects, r.Records)
	fmt.Fprintf(&b, "%-16s\t%-16s\t%-7s\t%-7s\t%-7s\t%s\n", "column", "key", "type", "present", "unique", "invalid")
	for _, c := range r.Columns {
		key := c.Key
		if key == "" {
			key = "-"
		}
		unique := fmt.Sprint(c.Distinct)
		if c.Capped {
			unique += "+"
		}
		invalid := fmt.Sprint(c.Invalid)
		if c.Invalid > 0 {
			invalid += " (first " + c.FirstInvalid + ")"
		}
		fmt.Fprintf(&b, "%-16s\t%-16s\t%-7s\t%.1f%%\t%-7s\t%s\n",
			c.Name, key, c.Type, 100*float64(c.Present)/float64(r.Records), unique, invalid)
	}
	if len(r.UnusedKeys) > 0 {
		fmt.Fprintf(&b, "unused keys:\t%s\n", strings.Join(r.UnusedKeys, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
