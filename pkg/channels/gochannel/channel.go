// Package gochannel provides the in-process event transport used for single-binary deployments and tests.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Options tunes the in-process channel.
type Options struct {
	// Buffer is the per-subscriber output buffer.
	Buffer int64
	// Persistent keeps published messages so late subscribers still receive them.
	Persistent bool
}

// DefaultOptions is used by the run command.
func DefaultOptions() Options {
	return Options{Buffer: 1000}
}

// PersistentOptions replays events to subscribers that attach after publishing.
func PersistentOptions() Options {
	return Options{Buffer: 10, Persistent: true}
}

// CreateChannel returns one GoChannel acting as both publisher and subscriber.
func CreateChannel(logger watermill.LoggerAdapter, opts Options) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultOptions().Buffer
	}

	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: opts.Buffer,
			Persistent:          opts.Persistent,
		},
		logger,
	)

	return pubSub, pubSub, nil
}
