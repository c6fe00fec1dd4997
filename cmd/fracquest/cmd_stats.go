package main

import (
	"fmt"
	"strconv"
)

// cmdStats shows accuracy or completion statistics
func cmdStats(c *client, args []string) error {
	subCmd := "overview"
	if len(args) > 0 {
		subCmd = args[0]
	}

	switch subCmd {
	case "overview", "":
		return cmdStatsOverview(c)
	case "completion":
		return cmdStatsCompletion(c, args[1:])
	default:
		return fmt.Errorf("unknown stats command: %s (valid: overview, completion)", subCmd)
	}
}

func cmdStatsOverview(c *client) error {
	var stats struct {
		Accuracy       int `json:"accuracy"`
		TotalAttempts  int `json:"total_attempts"`
		CorrectAnswers int `json:"correct_answers"`
		WrongAnswers   int `json:"wrong_answers"`
	}
	if err := c.get("/v1/stats", &stats); err != nil {
		return err
	}

	fmt.Println("Quiz Statistics")
	fmt.Println("===============")
	fmt.Printf("Accuracy:        %s %d%%\n", renderProgressBar(float64(stats.Accuracy)/100, 20), stats.Accuracy)
	fmt.Printf("Total Answers:   %d\n", stats.TotalAttempts)
	fmt.Printf("Correct:         %d\n", stats.CorrectAnswers)
	fmt.Printf("Wrong:           %d\n", stats.WrongAnswers)
	return nil
}

func cmdStatsCompletion(c *client, args []string) error {
	path := "/v1/stats/completion"
	label := "Overall"
	if len(args) > 0 {
		group, err := parseGroup(args[0])
		if err != nil {
			return err
		}
		path += "?group=" + strconv.Itoa(group)
		label = fmt.Sprintf("Group %d", group)
	}

	var resp struct {
		Percentage int `json:"percentage"`
	}
	if err := c.get(path, &resp); err != nil {
		return err
	}

	fmt.Printf("%-10s %s %d%%\n", label, renderProgressBar(float64(resp.Percentage)/100, 20), resp.Percentage)
	return nil
}
