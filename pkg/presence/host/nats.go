package host

import (
	"strings"

	"github.com/argus-labs/presence/pkg/micro"
	"github.com/argus-labs/presence/pkg/presence/render"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Subject tokens under the shard prefix.
const (
	EventJoin    = "join"
	EventQuit    = "quit"
	EventDeath   = "death"
	EventMove    = "move"
	EventMetrics = "metrics"

	SurfaceRoster       = "roster"
	SurfaceHeaderFooter = "header_footer"
	SurfaceNametag      = "nametag"
	GroupCreate         = "create"
	GroupDestroy        = "destroy"
	GroupAdd            = "add"
	GroupRemove         = "remove"
)

func EventSubject(prefix, event string) string {
	return micro.Endpoint(prefix, "event", event)
}

func SurfaceSubject(prefix, surface string) string {
	return micro.Endpoint(prefix, "surface", surface)
}

func GroupSubject(prefix, op string) string {
	return micro.Endpoint(prefix, "surface", "group", op)
}

// SubscribeFeed subscribes feed to the event subjects under prefix. A single wildcard
// subscription keeps events in the order the host published them. Malformed and rejected events
// are logged and dropped.
func SubscribeFeed(c *micro.Client, prefix string, feed *Feed, log zerolog.Logger) (*nats.Subscription, error) {
	sub, err := micro.Subscribe(c, EventSubject(prefix, "*"), func(subject string, data json.RawMessage) {
		event := subject[strings.LastIndexByte(subject, '.')+1:]
		if err := dispatch(feed, event, data); err != nil {
			log.Warn().Err(err).Str("subject", subject).Msg("Rejected host event")
		}
	})
	if err != nil {
		return nil, eris.Wrap(err, "failed to subscribe event feed")
	}
	return sub, nil
}

func dispatch(feed *Feed, event string, data []byte) error {
	switch event {
	case EventJoin:
		return decodeAndApply(data, feed.Join)
	case EventQuit:
		return decodeAndApply(data, feed.Quit)
	case EventDeath:
		return decodeAndApply(data, feed.Death)
	case EventMove:
		return decodeAndApply(data, feed.Move)
	case EventMetrics:
		return decodeAndApply(data, feed.Metrics)
	default:
		return eris.Wrapf(ErrInvalidEvent, "unknown event %q", event)
	}
}

func decodeAndApply[T any](data []byte, apply func(T) error) error {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return eris.Wrapf(ErrInvalidEvent, "malformed payload: %v", err)
	}
	return apply(ev)
}

// NATSSurface publishes rendered text and group mutations for the host to apply. Group handles
// are the group keys.
type NATSSurface struct {
	client *micro.Client
	prefix string
}

var _ Surface = (*NATSSurface)(nil)

func NewNATSSurface(client *micro.Client, prefix string) *NATSSurface {
	return &NATSSurface{client: client, prefix: prefix}
}

func (s *NATSSurface) SetRosterLine(id uuid.UUID, line render.StyledText) error {
	return s.client.Publish(SurfaceSubject(s.prefix, SurfaceRoster), LineMessage{ID: id, Text: line})
}

func (s *NATSSurface) SetHeaderFooter(id uuid.UUID, header, footer render.StyledText) error {
	return s.client.Publish(SurfaceSubject(s.prefix, SurfaceHeaderFooter),
		HeaderFooterMessage{ID: id, Header: header, Footer: footer})
}

func (s *NATSSurface) SetNameLabel(id uuid.UUID, label render.StyledText) error {
	return s.client.Publish(SurfaceSubject(s.prefix, SurfaceNametag), LineMessage{ID: id, Text: label})
}

func (s *NATSSurface) CreateGroup(key string) (GroupHandle, error) {
	if err := s.client.Publish(GroupSubject(s.prefix, GroupCreate), GroupMessage{Group: key}); err != nil {
		return "", err
	}
	return GroupHandle(key), nil
}

func (s *NATSSurface) DestroyGroup(h GroupHandle) error {
	return s.client.Publish(GroupSubject(s.prefix, GroupDestroy), GroupMessage{Group: string(h)})
}

func (s *NATSSurface) AddMember(h GroupHandle, id uuid.UUID) error {
	return s.client.Publish(GroupSubject(s.prefix, GroupAdd), GroupMessage{Group: string(h), ID: &id})
}

func (s *NATSSurface) RemoveMember(h GroupHandle, id uuid.UUID) error {
	return s.client.Publish(GroupSubject(s.prefix, GroupRemove), GroupMessage{Group: string(h), ID: &id})
}
