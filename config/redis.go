package config

import "strings"

// RedisConfig contains the optional Redis connection used to share refresh
// coordination between gateway instances. An empty URI keeps coordination in-process.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:""`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	KeyPrefix          string   `env:"KEY_PREFIX"           envDefault:"yt-gateway:"`
	SentinelNodes      []string `env:"SENTINEL_NODES"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// Sanitize trims connection settings.
func (r *RedisConfig) Sanitize() {
	r.URI = strings.TrimSpace(r.URI)
	r.KeyPrefix = strings.TrimSpace(r.KeyPrefix)
	r.SentinelNodes = trimList(r.SentinelNodes)
	r.ClusterNodes = trimList(r.ClusterNodes)
}

// Enabled reports whether any Redis topology is configured.
func (r *RedisConfig) Enabled() bool {
	switch {
	case r.UseCluster:
		return len(r.ClusterNodes) > 0
	case r.UseSentinel:
		return len(r.SentinelNodes) > 0
	default:
		return r.URI != ""
	}
}

func trimList(in []string) []string {
	out := in[:0]
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
