// Package functests runs end to end scenarios on a simulated cluster and
// reports them on the console.
package functests

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
)

type testCase struct {
	name   string
	action func() error
}

var testCases = []testCase{
	{
		name:   "basic types",
		action: caseBasicTypes,
	},
	{
		name:   "async methods",
		action: caseAsyncMethods,
	},
	{
		name:   "broadcast",
		action: caseBroadcast,
	},
	{
		name:   "errors",
		action: caseErrors,
	},
	{
		name:   "concurrent calls under latency",
		action: caseConcurrency,
	},
	{
		name:   "node offline and back",
		action: caseOffline,
	},
}

func List() {
	for i, c := range testCases {
		fmt.Printf("%2d: %v\n", i+1, c.name)
	}
}

func Count() {
	fmt.Printf("%v\n", len(testCases))
}

func Run(n int) error {
	if n <= 0 || n > len(testCases) {
		return errors.New("Please provide a valid test case id.")
	}
	c := testCases[n-1]
	fmt.Printf("--------------------\n")
	fmt.Printf("running test %2d: %v\n", n, c.name)
	fmt.Printf("--------------------\n")
	t := time.Now()
	err := c.action()
	fmt.Printf("\n--------------------\n")
	if err == nil {
		color.Green("SUCCESS\n")
	} else {
		color.Red("FAIL\n")
		fmt.Printf("%v\n", err)
	}
	fmt.Printf("Time used: %.2fs\n", time.Since(t).Seconds())
	fmt.Printf("--------------------\n")
	return err
}

// RunAll runs every case and fails when one of them does.
func RunAll() error {
	failed := 0
	for i := range testCases {
		if err := Run(i + 1); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return errors.Errorf("%d of %d cases failed", failed, len(testCases))
	}
	return nil
}
