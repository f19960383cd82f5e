package model

import "testing"

func TestParseOperationName_ServiceOnly(t *testing.T) {
	got, err := ParseOperationName("zookeeper_install")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Entity.Service != "zookeeper" || !got.Entity.IsService() {
		t.Errorf("expected a bare zookeeper service entity, got %+v", got.Entity)
	}
	if got.Action != ActionInstall {
		t.Errorf("expected install action, got %s", got.Action)
	}
}

func TestParseOperationName_ServiceAndComponent(t *testing.T) {
	got, err := ParseOperationName("hdfs_namenode_start")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Entity.Service != "hdfs" || got.Entity.Component != "namenode" {
		t.Errorf("expected hdfs/namenode, got %+v", got.Entity)
	}
	if got.Action != ActionStart {
		t.Errorf("expected start action, got %s", got.Action)
	}
}

func TestParseOperationName_LongestCanonicalSuffixWins(t *testing.T) {
	// "restart" and "start" both end the name textually as substrings of
	// each other's neighbourhood; the grammar must still pick "restart"
	// when the name actually ends in "_restart", not fall back to a
	// shorter accidental match.
	got, err := ParseOperationName("hdfs_namenode_restart")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Action != ActionRestart {
		t.Errorf("expected restart action, got %s", got.Action)
	}
}

func TestParseOperationName_NoRecognizableAction(t *testing.T) {
	if _, err := ParseOperationName("hdfs_namenode"); err == nil {
		t.Fatal("expected an error for a name with no action suffix")
	}
}

func TestParseOperationName_RoundTripsThroughString(t *testing.T) {
	for _, name := range []string{"zookeeper_install", "hdfs_namenode_start", "yarn_resourcemanager_config"} {
		parsed, err := ParseOperationName(name)
		if err != nil {
			t.Fatalf("unexpected error parsing %q: %v", name, err)
		}
		if parsed.String() != name {
			t.Errorf("round-trip mismatch: parsed %q, rendered %q", name, parsed.String())
		}
	}
}

func TestParseEntityName_SplitsOnFirstUnderscoreOnly(t *testing.T) {
	got := ParseEntityName("hdfs_namenode_extra")
	if got.Service != "hdfs" || got.Component != "namenode_extra" {
		t.Errorf("expected first-underscore split hdfs/namenode_extra, got %+v", got)
	}
}

func TestPriority_KnownAndUnknownServices(t *testing.T) {
	if Priority("zookeeper") != 2 {
		t.Errorf("expected zookeeper priority 2, got %d", Priority("zookeeper"))
	}
	if Priority("unknown-service") != ServicePriorityDefault {
		t.Errorf("expected default priority for an unlisted service, got %d", Priority("unknown-service"))
	}
}

func TestEntityName_Validate(t *testing.T) {
	if err := (ServiceName("")).Validate(); err == nil {
		t.Error("expected empty service name to fail validation")
	}
	longName := make([]byte, serviceNameMaxLength+1)
	for i := range longName {
		longName[i] = 'a'
	}
	if err := (ServiceName(longName)).Validate(); err == nil {
		t.Error("expected an over-length service name to fail validation")
	}
}
