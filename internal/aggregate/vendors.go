package aggregate

import "sort"

// VendorTags counts, per tag, how many samples each engine contributed it to
type VendorTags struct {
	tags map[string]map[string]int
}

// NewVendorTags creates an empty VendorTags
func NewVendorTags() *VendorTags {
	return &VendorTags{tags: make(map[string]map[string]int)}
}

// Observe adds the tag -> engines map of one sample
func (v *VendorTags) Observe(tagVendors map[string][]string) {
	for tag, vendors := range tagVendors {
		data, exists := v.tags[tag]
		if !exists {
			data = make(map[string]int)
			v.tags[tag] = data
		}
		for _, vendor := range vendors {
			data[vendor]++
		}
	}
}

// Tags returns every tag seen, sorted
func (v *VendorTags) Tags() []string {
	out := make([]string, 0, len(v.tags))
	for t := range v.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Vendors returns the engines of tag by descending count, then name
func (v *VendorTags) Vendors(tag string) []VendorCount {
	data := v.tags[tag]
	out := make([]VendorCount, 0, len(data))
	for vendor, n := range data {
		out = append(out, VendorCount{Vendor: vendor, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Vendor < out[j].Vendor
	})
	return out
}
