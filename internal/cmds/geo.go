package cmds

import (
	"strconv"

	"github.com/corekv/corekv/internal/geo"
	"github.com/corekv/corekv/internal/notify"
	"github.com/corekv/corekv/internal/resp"
	"github.com/corekv/corekv/internal/store"
)

// GeoPoint is one GEOADD (longitude, latitude, member) triple.
type GeoPoint struct {
	Lon, Lat float64
	Member   string
}

// ParseGeoPoints consumes GEOADD's longitude/latitude/member triples
// (argv[2:]), grounded on original_source/src/cmd/geo.rs's geoadd loop.
func ParseGeoPoints(argv [][]byte) ([]GeoPoint, error) {
	if len(argv) == 0 || len(argv)%3 != 0 {
		return nil, errSetSyntax
	}
	out := make([]GeoPoint, 0, len(argv)/3)
	for i := 0; i < len(argv); i += 3 {
		lon, err := strconv.ParseFloat(string(argv[i]), 64)
		if err != nil {
			return nil, errSetNotInt
		}
		lat, err := strconv.ParseFloat(string(argv[i+1]), 64)
		if err != nil {
			return nil, errSetNotInt
		}
		out = append(out, GeoPoint{Lon: lon, Lat: lat, Member: string(argv[i+2])})
	}
	return out, nil
}

// GeoAdd implements GEOADD: each point's geohash becomes its sorted-set
// score, the same encoding original_source's geoadd uses, stored in the
// same ZSet type ZADD operates on so GEO* and Z* commands compose on
// the same key.
func (c *Context) GeoAdd(key string, points []GeoPoint) resp.Frame {
	var added int
	var typeErr bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if exists && e.Value.Kind != store.KindZSet {
			typeErr = true
			return e, false
		}
		if !exists {
			e = store.NewEntry(store.NewZSet())
		}
		for _, p := range points {
			score := float64(geo.Encode(p.Lat, p.Lon))
			if e.Value.ZSet.Add(p.Member, score) {
				added++
			}
		}
		return e, false
	})
	if typeErr {
		return errWrongType()
	}
	c.touch(notify.ClassZSet, "geoadd", key)
	return resp.Int(int64(added))
}

// GeoPos implements GEOPOS: one [lon, lat] bulk pair per member, or a
// null array entry for members with no stored position.
func (c *Context) GeoPos(key string, members []string) resp.Frame {
	items := make([]resp.Frame, len(members))
	c.Store.View(key, func(e *store.Entry, exists bool) {
		for i, m := range members {
			if !exists || e.Value.Kind != store.KindZSet {
				items[i] = resp.NullArray()
				continue
			}
			score, ok := e.Value.ZSet.Score(m)
			if !ok {
				items[i] = resp.NullArray()
				continue
			}
			lat, lon := geo.Decode(uint64(score))
			items[i] = resp.Arr(
				resp.BulkStr(strconv.FormatFloat(lon, 'f', 17, 64)),
				resp.BulkStr(strconv.FormatFloat(lat, 'f', 17, 64)),
			)
		}
	})
	return resp.ArrSlice(items)
}

// GeoHash implements GEOHASH: the standard (non-interleaved) base32
// geohash string per member.
func (c *Context) GeoHash(key string, members []string) resp.Frame {
	items := make([]resp.Frame, len(members))
	c.Store.View(key, func(e *store.Entry, exists bool) {
		for i, m := range members {
			if !exists || e.Value.Kind != store.KindZSet {
				items[i] = resp.Null()
				continue
			}
			score, ok := e.Value.ZSet.Score(m)
			if !ok {
				items[i] = resp.Null()
				continue
			}
			lat, lon := geo.Decode(uint64(score))
			items[i] = resp.BulkStr(geo.ToBase32(lat, lon))
		}
	})
	return resp.ArrSlice(items)
}

// GeoDist implements GEODIST, converting the haversine distance between
// two members to unitScale meters-per-unit.
func (c *Context) GeoDist(key, member1, member2 string, unitScale float64) resp.Frame {
	result := resp.Null()
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists || e.Value.Kind != store.KindZSet {
			return
		}
		s1, ok1 := e.Value.ZSet.Score(member1)
		s2, ok2 := e.Value.ZSet.Score(member2)
		if !ok1 || !ok2 {
			return
		}
		lat1, lon1 := geo.Decode(uint64(s1))
		lat2, lon2 := geo.Decode(uint64(s2))
		dist := geo.Distance(lat1, lon1, lat2, lon2) / unitScale
		result = resp.BulkStr(strconv.FormatFloat(dist, 'f', 4, 64))
	})
	return result
}

// GeoSearch implements GEOSEARCH's FROMLONLAT/BYRADIUS form: every
// member within radiusM meters of (lon, lat), ascending by distance,
// each rendered with its distance in unitScale-sized units.
func (c *Context) GeoSearch(key string, lon, lat, radiusM, unitScale float64, withCoord, withDist, withHash bool, count int) resp.Frame {
	var items []resp.Frame
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists || e.Value.Kind != store.KindZSet {
			return
		}
		matches := geo.Search(e.Value.ZSet, lat, lon, radiusM)
		if count > 0 && count < len(matches) {
			matches = matches[:count]
		}
		for _, m := range matches {
			if !withCoord && !withDist && !withHash {
				items = append(items, resp.BulkStr(m.Name))
				continue
			}
			row := []resp.Frame{resp.BulkStr(m.Name)}
			if withDist {
				row = append(row, resp.BulkStr(strconv.FormatFloat(m.DistM/unitScale, 'f', 4, 64)))
			}
			if withHash {
				row = append(row, resp.Int(int64(m.Score)))
			}
			if withCoord {
				row = append(row, resp.Arr(
					resp.BulkStr(strconv.FormatFloat(m.Lon, 'f', 17, 64)),
					resp.BulkStr(strconv.FormatFloat(m.Lat, 'f', 17, 64)),
				))
			}
			items = append(items, resp.Arr(row...))
		}
	})
	return resp.ArrSlice(items)
}
