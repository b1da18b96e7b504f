package broker

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic(fmt.Sprintf("broker: zstd encoder init: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("broker: zstd decoder init: %v", err))
	}
}

// KafkaBroker implements Broker directly against franz-go, bypassing
// consumer groups entirely: the replication protocol is the only owner of
// offsets (spec.md §4.4's state machine drives every seek), so every
// partition is consumed by direct assignment.
type KafkaBroker struct {
	brokers   []string
	clientID  string
	partition int32
	tlsCfg    *tls.Config
	saslMech  sasl.Mechanism
	compress  bool

	produce *kgo.Client
	adm     *kadm.Client
}

// NewKafkaBroker dials a shared client used for both producing and
// next-offset queries. Consuming is always a fresh, independently seekable
// client per ConsumeFrom call. When compress is set, every record this
// broker produces is zstd-compressed and every record it consumes is
// zstd-decompressed; the two ends of a stream must agree on this setting.
func NewKafkaBroker(brokers []string, clientID string, partition int32, tlsCfg *tls.Config, saslMech sasl.Mechanism, compress bool) (*KafkaBroker, error) {
	opts := baseOpts(brokers, clientID, tlsCfg, saslMech)
	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("broker: dialing producer client: %w", err)
	}
	return &KafkaBroker{
		brokers:   brokers,
		clientID:  clientID,
		partition: partition,
		tlsCfg:    tlsCfg,
		saslMech:  saslMech,
		compress:  compress,
		produce:   cl,
		adm:       kadm.NewClient(cl),
	}, nil
}

func baseOpts(brokers []string, clientID string, tlsCfg *tls.Config, saslMech sasl.Mechanism) []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
	}
	if tlsCfg != nil {
		opts = append(opts, kgo.DialTLSConfig(tlsCfg))
	}
	if saslMech != nil {
		opts = append(opts, kgo.SASL(saslMech))
	}
	return opts
}

func (k *KafkaBroker) Close() {
	k.produce.Close()
}

func (k *KafkaBroker) Produce(ctx context.Context, topic string, value []byte) (int64, error) {
	if k.compress {
		value = zstdEncoder.EncodeAll(value, make([]byte, 0, len(value)))
	}
	rec := &kgo.Record{Topic: topic, Partition: k.partition, Value: value}
	results := k.produce.ProduceSync(ctx, rec)
	if err := results.FirstErr(); err != nil {
		return 0, fmt.Errorf("broker: producing to %s: %w", topic, err)
	}
	return rec.Offset, nil
}

func (k *KafkaBroker) NextOffset(ctx context.Context, topic string) (int64, error) {
	endOffsets, err := k.adm.ListEndOffsets(ctx, topic)
	if err != nil {
		return 0, fmt.Errorf("broker: listing end offsets for %s: %w", topic, err)
	}
	resp, ok := endOffsets.Lookup(topic, k.partition)
	if !ok {
		return 0, fmt.Errorf("broker: no end-offset response for %s/%d", topic, k.partition)
	}
	if resp.Err != nil {
		return 0, fmt.Errorf("broker: end-offset query for %s/%d: %w", topic, k.partition, resp.Err)
	}
	return resp.Offset, nil
}

func (k *KafkaBroker) ConsumeFrom(_ context.Context, topic string, offset int64) (Consumer, error) {
	opts := baseOpts(k.brokers, k.clientID, k.tlsCfg, k.saslMech)
	opts = append(opts, kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
		topic: {k.partition: kgo.NewOffset().At(offset)},
	}))
	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("broker: dialing consumer client for %s: %w", topic, err)
	}
	return &kafkaConsumer{cl: cl, topic: topic, partition: k.partition, compress: k.compress}, nil
}

type kafkaConsumer struct {
	cl        *kgo.Client
	topic     string
	partition int32
	compress  bool

	buf []*kgo.Record
}

func (c *kafkaConsumer) Next(ctx context.Context) ([]byte, int64, error) {
	for len(c.buf) == 0 {
		fetches := c.cl.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			return nil, 0, fmt.Errorf("broker: fetch error on %s/%d: %w", c.topic, c.partition, errs[0].Err)
		}
		fetches.EachRecord(func(r *kgo.Record) {
			c.buf = append(c.buf, r)
		})
	}
	r := c.buf[0]
	c.buf = c.buf[1:]
	value := r.Value
	if c.compress {
		decoded, err := zstdDecoder.DecodeAll(value, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("broker: zstd decode on %s/%d offset %d: %w", c.topic, c.partition, r.Offset, err)
		}
		value = decoded
	}
	return value, r.Offset, nil
}

func (c *kafkaConsumer) SeekTo(offset int64) error {
	c.buf = nil
	c.cl.SetOffsets(map[string]map[int32]kgo.EpochOffset{
		c.topic: {c.partition: {Epoch: -1, Offset: offset}},
	})
	return nil
}

func (c *kafkaConsumer) Close() error {
	c.cl.Close()
	return nil
}
