package lifecycle

import (
	"net/url"
	"strings"
)

// ValidateMediaRef accepts absolute http(s) URLs and gs://bucket/object keys.
func ValidateMediaRef(ref string) error {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return invalid("media", "%q is not a URL", ref)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return invalid("media", "%q has no host", ref)
		}
	case "gs":
		if u.Host == "" || strings.Trim(u.Path, "/") == "" {
			return invalid("media", "%q must name a bucket and object", ref)
		}
	default:
		return invalid("media", "%q must be an http(s) URL or gs:// key", ref)
	}
	return nil
}

func validateMedia(refs []string) error {
	for _, ref := range refs {
		if err := ValidateMediaRef(ref); err != nil {
			return err
		}
	}
	return nil
}
