package main

import (
	"fmt"
)

type sessionResponse struct {
	UserID   string `json:"user_id"`
	SignedIn bool   `json:"signed_in"`
}

// cmdLogin signs the daemon's device session in as a student
func cmdLogin(c *client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: fracquest login <user-id>")
	}

	var resp sessionResponse
	if err := c.put("/v1/session", map[string]string{"user_id": args[0]}, &resp); err != nil {
		return err
	}
	fmt.Printf("✓ Signed in as %s\n", resp.UserID)
	return nil
}

// cmdLogout returns the device to anonymous, local-only play
func cmdLogout(c *client) error {
	if err := c.delete("/v1/session", nil); err != nil {
		return err
	}
	fmt.Println("✓ Signed out; progress is kept on this device only")
	return nil
}

// cmdWhoami shows who the daemon is playing as
func cmdWhoami(c *client) error {
	var resp sessionResponse
	if err := c.get("/v1/session", &resp); err != nil {
		return err
	}
	if !resp.SignedIn {
		fmt.Println("Not signed in (anonymous play)")
		return nil
	}
	fmt.Printf("Signed in as %s\n", resp.UserID)
	return nil
}
