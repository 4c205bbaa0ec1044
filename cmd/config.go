package main

import "time"

type Config struct {
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080"`
	LogLevel             string        `env:"LOG_LEVEL,required=true"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath        string        `env:"BLUGE_FILEPATH,required=true"`
	MediaDir             string        `env:"MEDIA_DIR,required=true"`
	ListingBaseURL       string        `env:"LISTING_BASE_URL,required=true"`
	ListingTimeout       time.Duration `env:"LISTING_TIMEOUT,default=5s"`
	TokenSecret          string        `env:"TOKEN_SECRET,required=true"`
	PageSize             int           `env:"PAGE_SIZE,default=50"`
	BufferSize           int           `env:"BUFFER_SIZE,required=true"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,required=true"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`
	RateLimitMax         int           `env:"RATE_LIMIT_MAX,default=10"`
	RateLimitWindow      time.Duration `env:"RATE_LIMIT_WINDOW,default=60s"`
	PresenceTimeout      time.Duration `env:"PRESENCE_TIMEOUT,default=60s"`
	SweepInterval        time.Duration `env:"SWEEP_INTERVAL,default=10m"`
	RetentionWindow      time.Duration `env:"RETENTION_WINDOW,default=1h"`
	SweepBatchSize       int           `env:"SWEEP_BATCH_SIZE,default=512"`
	ModerationChar       rune          `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`
}
