package config

import "testing"

func validConfig() *Config {
	return &Config{
		DataDir:                    "/var/lib/shardctl",
		MaxConcurrentTransfers:     4,
		MetadataCheckpointInterval: 1000,
	}
}

func TestValidateAcceptsSaneConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsEmptyDataDir(t *testing.T) {
	c := validConfig()
	c.DataDir = ""
	if err := c.Validate(); err == nil {
		t.Error("Validate() with empty DataDir: expected error, got nil")
	}
}

func TestValidateRejectsNonPositiveMaxConcurrentTransfers(t *testing.T) {
	c := validConfig()
	c.MaxConcurrentTransfers = 0
	if err := c.Validate(); err == nil {
		t.Error("Validate() with MaxConcurrentTransfers=0: expected error, got nil")
	}
}

func TestValidateRejectsNonPositiveCheckpointInterval(t *testing.T) {
	c := validConfig()
	c.MetadataCheckpointInterval = -1
	if err := c.Validate(); err == nil {
		t.Error("Validate() with negative MetadataCheckpointInterval: expected error, got nil")
	}
}

func TestAllowsOverlap(t *testing.T) {
	testCases := []struct {
		name            string
		defaultAllow    bool
		allowedSegments []string
		segment         string
		want            bool
	}{
		{"default true allows anything", true, nil, "users", true},
		{"default false, not listed", false, []string{"orders"}, "users", false},
		{"default false, listed", false, []string{"orders", "users"}, "users", true},
		{"default false, empty list", false, nil, "users", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Config{AllowOverlappingKeysDefault: tc.defaultAllow, SegmentsAllowingOverlap: tc.allowedSegments}
			if got := c.AllowsOverlap(tc.segment); got != tc.want {
				t.Errorf("AllowsOverlap(%q) = %v, want %v", tc.segment, got, tc.want)
			}
		})
	}
}

func TestStringIncludesKeyFields(t *testing.T) {
	c := validConfig()
	c.Endpoint = "0.0.0.0:8080"
	c.LogLevel = "debug"
	s := c.String()

	for _, want := range []string{"/var/lib/shardctl", "0.0.0.0:8080", "debug"} {
		if !stringsContains(s, want) {
			t.Errorf("String() missing %q in output:\n%s", want, s)
		}
	}
}

func stringsContains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
