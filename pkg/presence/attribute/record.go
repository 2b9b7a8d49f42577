package attribute

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// Record holds the tracked attributes of one player. The zero value is a player with no status,
// no deaths and no known country.
type Record struct {
	Status  string
	Deaths  int64
	Country *Country
}

// Country is a geolocation result together with the time it was fetched.
type Country struct {
	Name      string
	Code      string
	FetchedAt time.Time
}

// Expired reports whether the lookup is older than ttl as of now. A ttl of zero never expires.
func (c *Country) Expired(now time.Time, ttl time.Duration) bool {
	if c == nil {
		return true
	}
	if ttl == 0 {
		return false
	}
	return now.Sub(c.FetchedAt) >= ttl
}

func (r Record) clone() Record {
	if r.Country != nil {
		c := *r.Country
		r.Country = &c
	}
	return r
}

func (r Record) isZero() bool {
	return r.Status == "" && r.Deaths == 0 && r.Country == nil
}

// -------------------------------------------------------------------------------------------------
// Persisted layout
// -------------------------------------------------------------------------------------------------

const (
	collectionPlayers = "players"
	collectionServer  = "server"
	serverStatsKey    = "stats"
)

type recordJSON struct {
	Status  string       `json:"status,omitempty"`
	Deaths  int64        `json:"deaths"`
	Country *countryJSON `json:"country,omitempty"`
}

type countryJSON struct {
	Name      string `json:"name"`
	Code      string `json:"code"`
	FetchedAt int64  `json:"fetchedAt"` // Unix milliseconds
}

type serverStatsJSON struct {
	TotalDeaths int64 `json:"totalDeaths"`
}

func encodeRecord(r Record) ([]byte, error) {
	out := recordJSON{Status: r.Status, Deaths: r.Deaths}
	if r.Country != nil {
		out.Country = &countryJSON{
			Name:      r.Country.Name,
			Code:      r.Country.Code,
			FetchedAt: r.Country.FetchedAt.UnixMilli(),
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, eris.Wrap(err, "failed to encode player record")
	}
	return data, nil
}

func decodeRecord(data []byte) (Record, error) {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return Record{}, eris.Wrap(err, "failed to decode player record")
	}
	r := Record{Status: in.Status, Deaths: max(in.Deaths, 0)}
	if in.Country != nil && in.Country.Name != "" {
		r.Country = &Country{
			Name:      in.Country.Name,
			Code:      in.Country.Code,
			FetchedAt: time.UnixMilli(in.Country.FetchedAt),
		}
	}
	return r, nil
}
