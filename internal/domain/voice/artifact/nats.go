package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"kani-tts-server/internal/platform/errors"
)

type natsStore struct {
	conn   *nats.Conn
	bucket string
	store  nats.ObjectStore
}

// NewNATS connects to the broker and binds (creating if absent) the
// JetStream object store bucket holding voice artifacts.
func NewNATS(cfg *NATSConfig) (Store, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("nats artifact store requires a url")
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "voice-artifacts"
	}

	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open jetstream context: %w", err)
	}

	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: fmt.Sprintf("Storage for the %s bucket.", bucket),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if err == jetstream.ErrBucketExists || err == nats.ErrStreamNameAlreadyInUse {
			store, err = js.ObjectStore(bucket)
		}
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("bind object store bucket %q: %w", bucket, err)
		}
	}

	return &natsStore{
		conn:   conn,
		bucket: bucket,
		store:  store,
	}, nil
}

// objectName flattens slash-separated keys; object names cannot contain
// path separators.
func objectName(key string) string {
	out := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			out[i] = '.'
		} else {
			out[i] = key[i]
		}
	}
	return string(out)
}

func (s *natsStore) Put(_ context.Context, key string, data []byte) error {
	_, err := s.store.Put(&nats.ObjectMeta{Name: objectName(key)}, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(errors.KindStorage, "artifact.put",
			fmt.Sprintf("put object %q to bucket %q", key, s.bucket), err)
	}
	return nil
}

func (s *natsStore) Get(_ context.Context, key string) ([]byte, error) {
	obj, err := s.store.Get(objectName(key))
	if err != nil {
		if err == nats.ErrObjectNotFound {
			return nil, errors.Newf(errors.KindNotFound, "artifact.get", "artifact not found: %s", key)
		}
		return nil, errors.Wrap(errors.KindStorage, "artifact.get",
			fmt.Sprintf("get object %q from bucket %q", key, s.bucket), err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()
	if readErr != nil {
		return nil, errors.Wrap(errors.KindStorage, "artifact.get", "read object", readErr)
	}
	if closeErr != nil {
		return nil, errors.Wrap(errors.KindStorage, "artifact.get", "close object", closeErr)
	}
	return data, nil
}

func (s *natsStore) Delete(_ context.Context, key string) error {
	if err := s.store.Delete(objectName(key)); err != nil {
		if err == nats.ErrObjectNotFound {
			return errors.Newf(errors.KindNotFound, "artifact.delete", "artifact not found: %s", key)
		}
		return errors.Wrap(errors.KindStorage, "artifact.delete",
			fmt.Sprintf("delete object %q from bucket %q", key, s.bucket), err)
	}
	return nil
}

func (s *natsStore) Close(context.Context) error {
	s.conn.Close()
	return nil
}
