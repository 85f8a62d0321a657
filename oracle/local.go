package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flashbots/noisyagg/crypto"
	"github.com/flashbots/noisyagg/fhe"
	"github.com/flashbots/noisyagg/metrics"
	"github.com/flashbots/noisyagg/protocol"
	"golang.org/x/sync/errgroup"
)

// ErrQueueFull is returned when the oracle cannot accept another request.
var ErrQueueFull = errors.New("oracle queue full")

// Config tunes the LocalOracle worker pool.
type Config struct {
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
}

// DefaultConfig returns the worker pool defaults.
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		QueueSize:       256,
		DeliveryTimeout: 10 * time.Second,
	}
}

type job struct {
	requestID protocol.RequestID
	handles   []fhe.Handle
}

// LocalOracle is an in-process decryption oracle holding the secret key.
type LocalOracle struct {
	config     Config
	decryptor  fhe.Decryptor
	signingKey crypto.PrivateKey
	publicKey  crypto.PublicKey
	log        *slog.Logger

	mu       sync.Mutex
	nextID   protocol.RequestID
	requests map[protocol.RequestID][]fhe.Handle

	queue chan job
}

// NewLocalOracle creates an oracle. Requests are accepted right away but only
// processed once Run is called.
func NewLocalOracle(config Config, decryptor fhe.Decryptor, signingKey crypto.PrivateKey, log *slog.Logger) (*LocalOracle, error) {
	if decryptor == nil {
		return nil, errors.New("decryptor cannot be nil")
	}
	publicKey, err := signingKey.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("invalid oracle signing key: %w", err)
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1
	}
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = DefaultConfig().DeliveryTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	return &LocalOracle{
		config:     config,
		decryptor:  decryptor,
		signingKey: signingKey,
		publicKey:  publicKey,
		log:        log,
		requests:   make(map[protocol.RequestID][]fhe.Handle),
		queue:      make(chan job, config.QueueSize),
	}, nil
}

// PublicKey returns the key proofs are verified against.
func (o *LocalOracle) PublicKey() crypto.PublicKey {
	return o.publicKey
}

// RequestDecryption records the handle list under a fresh request id and
// queues it. It never blocks on a worker.
func (o *LocalOracle) RequestDecryption(ctx context.Context, handles []fhe.Handle) (protocol.RequestID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(handles) == 0 {
		return 0, errors.New("no handles to decrypt")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.nextID++
	requestID := o.nextID
	recorded := append([]fhe.Handle(nil), handles...)

	select {
	case o.queue <- job{requestID: requestID, handles: recorded}:
	default:
		return 0, ErrQueueFull
	}

	o.requests[requestID] = recorded
	metrics.SetOracleQueueDepth(len(o.queue))
	o.log.Debug("decryption requested", "requestID", requestID, "handles", len(handles))
	return requestID, nil
}

// VerifyProof checks that proof is this oracle's signature over the handles
// recorded for requestID and cleartext.
func (o *LocalOracle) VerifyProof(requestID protocol.RequestID, cleartext, proof []byte) bool {
	o.mu.Lock()
	handles, ok := o.requests[requestID]
	o.mu.Unlock()
	if !ok {
		return false
	}

	return VerifyStatement(o.publicKey, &Statement{
		RequestID: requestID,
		Handles:   handles,
		Cleartext: cleartext,
	}, proof)
}

// Run processes queued requests on the worker pool and delivers results
// through callback until ctx is cancelled.
func (o *LocalOracle) Run(ctx context.Context, callback Callback) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < o.config.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case j := <-o.queue:
					metrics.SetOracleQueueDepth(len(o.queue))
					o.process(ctx, callback, j)
				}
			}
		})
	}
	return g.Wait()
}

// Fulfil decrypts and signs a recorded request without delivering it.
func (o *LocalOracle) Fulfil(requestID protocol.RequestID) (*Result, error) {
	o.mu.Lock()
	handles, ok := o.requests[requestID]
	o.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown request %d", requestID)
	}
	return o.fulfil(requestID, handles)
}

func (o *LocalOracle) fulfil(requestID protocol.RequestID, handles []fhe.Handle) (*Result, error) {
	values := make([]uint64, len(handles))
	for i, h := range handles {
		v, err := o.decryptor.Decrypt(h)
		if err != nil {
			return nil, fmt.Errorf("decrypting %s: %w", h, err)
		}
		values[i] = v
	}

	cleartext := protocol.EncodeCleartext(values)
	proof, err := SignStatement(o.signingKey, &Statement{
		RequestID: requestID,
		Handles:   handles,
		Cleartext: cleartext,
	})
	if err != nil {
		return nil, fmt.Errorf("signing result: %w", err)
	}

	return &Result{RequestID: requestID, Cleartext: cleartext, Proof: proof}, nil
}

func (o *LocalOracle) process(ctx context.Context, callback Callback, j job) {
	result, err := o.fulfil(j.requestID, j.handles)
	if err != nil {
		metrics.RecordOracleDelivery("decrypt_error")
		o.log.Error("decryption failed", "requestID", j.requestID, "err", err)
		return
	}

	deliverCtx, cancel := context.WithTimeout(ctx, o.config.DeliveryTimeout)
	defer cancel()

	if err := callback.Deliver(deliverCtx, result); err != nil {
		metrics.RecordOracleDelivery("delivery_error")
		o.log.Error("delivering decryption result failed", "requestID", j.requestID, "err", err)
		return
	}
	metrics.RecordOracleDelivery("delivered")
	o.log.Debug("decryption result delivered", "requestID", j.requestID)
}
