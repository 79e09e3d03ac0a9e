package bridge

import (
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

const protocolVersion = "1"

// URI is a pairing URI of the form wc:{topic}@1?bridge={url}&key={hex}.
type URI struct {
	Topic   string
	Version string
	Bridge  string
	Key     string
}

// ParseURI parses and validates a pairing URI.
func ParseURI(raw string) (URI, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return URI{}, errors.Wrap(err, "invalid pairing uri")
	}
	if u.Scheme != "wc" {
		return URI{}, errors.Errorf("invalid pairing uri scheme %q", u.Scheme)
	}

	topic, version, ok := strings.Cut(u.Opaque, "@")
	if !ok || topic == "" {
		return URI{}, errors.New("pairing uri is missing its topic")
	}
	if version != protocolVersion {
		return URI{}, errors.Errorf("unsupported pairing protocol version %q", version)
	}

	query := u.Query()
	parsed := URI{
		Topic:   topic,
		Version: version,
		Bridge:  query.Get("bridge"),
		Key:     query.Get("key"),
	}

	if parsed.Bridge == "" {
		return URI{}, errors.New("pairing uri is missing the bridge url")
	}
	if _, err := hex.DecodeString(parsed.Key); err != nil || parsed.Key == "" {
		return URI{}, errors.New("pairing uri has an invalid key")
	}

	return parsed, nil
}

func (u URI) String() string {
	query := url.Values{}
	query.Set("bridge", u.Bridge)
	query.Set("key", u.Key)
	return "wc:" + u.Topic + "@" + u.Version + "?" + query.Encode()
}

// websocketURL maps the bridge url to its websocket endpoint.
func (u URI) websocketURL() (string, error) {
	endpoint, err := url.Parse(u.Bridge)
	if err != nil {
		return "", errors.Wrap(err, "invalid bridge url")
	}

	switch endpoint.Scheme {
	case "https":
		endpoint.Scheme = "wss"
	case "http":
		endpoint.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", errors.Errorf("unsupported bridge url scheme %q", endpoint.Scheme)
	}

	return endpoint.String(), nil
}
