package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
)

// cmdProgress shows the unlock state of every level group
func cmdProgress(c *client) error {
	var resp struct {
		Groups map[string][]int `json:"groups"`
	}
	if err := c.get("/v1/progress", &resp); err != nil {
		return err
	}

	printGroups(os.Stdout, resp.Groups)
	return nil
}

// cmdStages shows the unlocked stages of one level group
func cmdStages(c *client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: fracquest stages <group>")
	}
	group, err := parseGroup(args[0])
	if err != nil {
		return err
	}

	var resp struct {
		Group  int   `json:"group"`
		Stages []int `json:"stages"`
	}
	if err := c.get(fmt.Sprintf("/v1/levels/%d/stages", group), &resp); err != nil {
		return err
	}

	fmt.Printf("Group %d: %s\n", resp.Group, formatStages(resp.Stages))
	return nil
}

// cmdComplete records a finished quiz session
func cmdComplete(c *client, args []string) error {
	fs := flag.NewFlagSet("complete", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	wrong := fs.Bool("wrong", false, "the session ended with a wrong answer")
	remaining := fs.Float64("time", 0, "seconds left on the timer")

	// Flags may follow the positional arguments
	var positional []string
	for len(args) > 0 {
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("complete: %w", err)
		}
		args = fs.Args()
		if len(args) > 0 {
			positional = append(positional, args[0])
			args = args[1:]
		}
	}
	if len(positional) != 2 {
		return fmt.Errorf("usage: fracquest complete <group> <stage> [--wrong] [--time <secs>]")
	}

	group, err := parseGroup(positional[0])
	if err != nil {
		return err
	}
	stage, err := strconv.Atoi(positional[1])
	if err != nil {
		return fmt.Errorf("invalid stage %q", positional[1])
	}

	body := map[string]any{
		"stage":          stage,
		"is_correct":     !*wrong,
		"time_remaining": *remaining,
	}
	var resp struct {
		Group     int   `json:"group"`
		Stage     int   `json:"stage"`
		Stages    []int `json:"stages"`
		Persisted bool  `json:"persisted"`
	}
	if err := c.post(fmt.Sprintf("/v1/levels/%d/complete", group), body, &resp); err != nil {
		return err
	}

	if !resp.Persisted {
		fmt.Printf("! Group %d stage %d could not be saved, try again\n", resp.Group, resp.Stage)
		fmt.Printf("Unlocked: %s\n", formatStages(resp.Stages))
		return nil
	}

	result := "✓"
	if *wrong {
		result = "✗"
	}
	fmt.Printf("%s Group %d stage %d recorded\n", result, resp.Group, resp.Stage)
	fmt.Printf("Unlocked: %s\n", formatStages(resp.Stages))
	return nil
}

// cmdReset resets one level group, or everything
func cmdReset(c *client, args []string) error {
	path := "/v1/progress"
	if len(args) > 0 {
		group, err := parseGroup(args[0])
		if err != nil {
			return err
		}
		path += "?group=" + strconv.Itoa(group)
	}

	var resp struct {
		Groups map[string][]int `json:"groups"`
	}
	if err := c.delete(path, &resp); err != nil {
		return err
	}

	if len(args) > 0 {
		fmt.Printf("✓ Group %s reset\n", args[0])
	} else {
		fmt.Println("✓ All progress reset")
	}
	printGroups(os.Stdout, resp.Groups)
	return nil
}

func parseGroup(raw string) (int, error) {
	group, err := strconv.Atoi(raw)
	if err != nil || group < 1 {
		return 0, fmt.Errorf("invalid level group %q", raw)
	}
	return group, nil
}

func printGroups(w io.Writer, groups map[string][]int) {
	keys := make([]int, 0, len(groups))
	for k := range groups {
		if n, err := strconv.Atoi(k); err == nil {
			keys = append(keys, n)
		}
	}
	slices.Sort(keys)

	for _, n := range keys {
		fmt.Fprintf(w, "Group %d: %s\n", n, formatStages(groups[strconv.Itoa(n)]))
	}
}

func formatStages(stages []int) string {
	if len(stages) == 0 {
		return "locked"
	}
	return fmt.Sprint(stages)
}
