package functests

import "testing"

func TestCases(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end to end cases in short mode")
	}
	for i, c := range testCases {
		if err := Run(i + 1); err != nil {
			t.Errorf("%v: %v", c.name, err)
		}
	}
}

func TestRunInvalid(t *testing.T) {
	for _, n := range []int{0, len(testCases) + 1} {
		if err := Run(n); err == nil {
			t.Errorf("Run(%d) should fail", n)
		}
	}
}

func TestRandomEvent(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		seen[getRandomEvent()] = true
	}
	for _, e := range []string{networkReliability, nodeStatusChange, nodeRestart,
		networkBackToNormal, clientRequest, broadcastRequest} {
		if !seen[e] {
			t.Errorf("event %v never drawn", e)
		}
	}
}
