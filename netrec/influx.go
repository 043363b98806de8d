package netrec

import (
	"context"
	"crypto/tls"
	"math"
	"math/cmplx"
	"strconv"
	"time"

	influx "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/pkg/errors"

	"github.com/nasa-jpl/golaborate-vna/vna"
)

// Measurement is the influx measurement networks are written to
const Measurement = "sparam"

var (
	// ErrBlankOrgOrBucket is generated when the sink is built without an org or bucket
	ErrBlankOrgOrBucket = errors.New("influx organization or bucket cannot be blank")
)

// InfluxSink writes each point of a network to an influx bucket, tagged by
// network name, S-parameter, and frequency
type InfluxSink struct {
	client influx.Client
	Org    string
	Bucket string
}

// InfluxConfig holds the connection parameters of an InfluxSink
type InfluxConfig struct {
	URL     string `yaml:"URL"`
	Token   string `yaml:"Token"`
	Org     string `yaml:"Org"`
	Bucket  string `yaml:"Bucket"`
	SkipTLS bool   `yaml:"SkipTLS"`
}

// NewInfluxSink connects to the influx server at cfg.URL.  The connection is
// not tested until the first write.
func NewInfluxSink(cfg InfluxConfig) (*InfluxSink, error) {
	if cfg.Org == "" || cfg.Bucket == "" {
		return nil, ErrBlankOrgOrBucket
	}
	opts := influx.DefaultOptions()
	if cfg.SkipTLS {
		opts = opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	}
	c := influx.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	return &InfluxSink{client: c, Org: cfg.Org, Bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if the organization does not have it
func (s *InfluxSink) EnsureBucket(ctx context.Context) error {
	org, err := s.client.OrganizationsAPI().FindOrganizationByName(ctx, s.Org)
	if err != nil {
		return errors.Wrapf(err, "finding organization %s", s.Org)
	}
	buckets, err := s.client.BucketsAPI().FindBucketsByOrgName(ctx, s.Org)
	if err != nil {
		return errors.Wrapf(err, "listing buckets of %s", s.Org)
	}
	for _, b := range *buckets {
		if b.Name == s.Bucket {
			return nil
		}
	}
	_, err = s.client.BucketsAPI().CreateBucketWithName(ctx, org, s.Bucket, domain.RetentionRule{EverySeconds: 0})
	return err
}

// Points converts a network into influx points, one per S-parameter per
// frequency, all stamped at.  Each point carries the real and imaginary
// parts, the phase in degrees, and the magnitude in dB when it is finite.
func Points(ntwk *vna.Network, at time.Time) []*write.Point {
	n := ntwk.NPorts()
	out := make([]*write.Point, 0, ntwk.NPoints()*n*n)
	for k, s := range ntwk.S {
		f := strconv.FormatFloat(ntwk.Frequency.Hz[k], 'f', -1, 64)
		for d := 0; d < n; d++ {
			for src := 0; src < n; src++ {
				v := s[d][src]
				fields := map[string]interface{}{
					"re":        real(v),
					"im":        imag(v),
					"phase_deg": cmplx.Phase(v) * 180 / math.Pi,
				}
				if mag := cmplx.Abs(v); mag > 0 {
					fields["db"] = 20 * math.Log10(mag)
				}
				tags := map[string]string{
					"network":      ntwk.Name,
					"param":        ntwk.Key(d, src),
					"frequency_hz": f,
				}
				out = append(out, influx.NewPoint(Measurement, tags, fields, at))
			}
		}
	}
	return out
}

// Record implements Sink
func (s *InfluxSink) Record(ctx context.Context, ntwk *vna.Network, at time.Time) error {
	w := s.client.WriteAPIBlocking(s.Org, s.Bucket)
	err := w.WritePoint(ctx, Points(ntwk, at)...)
	if err != nil {
		return errors.Wrap(err, "writing network to influx")
	}
	return nil
}

// Close releases the influx client
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}
