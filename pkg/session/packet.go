package session

import (
	// Packages
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

// PacketBudget is the largest entry which fits in one OpenTTD content
// packet
const PacketBudget = 1400

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// PacketSize returns the size of the content packet which announces this
// version to game clients. Values which are not set in the fields are
// taken from the published package, which may be nil.
func PacketSize(fields Fields, pkg *schema.Package, classification *schema.Classification) int {
	if pkg == nil {
		pkg = &schema.Package{}
	}

	size := 1 + 4 + 4 // content type, content id, filesize
	size += len(either(fields.Name, pkg.Name)) + 2
	size += len(fields.Version) + 2
	size += len(either(fields.URL, pkg.URL)) + 2
	size += len(either(fields.Description, pkg.Description)) + 2
	size += 4  // unique id
	size += 16 // md5sum
	size += 4 * len(fields.Dependencies)
	size += 1 // tag count

	tags := fields.Tags
	if tags == nil {
		tags = pkg.Tags
	}
	regions := fields.Regions
	if regions == nil {
		regions = pkg.Regions
	}
	for _, tag := range tags {
		size += len(tag) + 2
	}
	for _, region := range regions {
		size += len(region) + 2
	}
	if classification != nil {
		for _, value := range classification.Values() {
			size += len(value) + 2
		}
	}
	return size
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func either(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
