// Command whoami asks a running authbridge agent who is signed in.
// Scripts can use the exit code: 0 signed in, 1 signed out, 2 agent
// unreachable.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ikahadi647-afk/authbridge/internal/models"
)

type sessionView struct {
	User          *models.User `json:"user"`
	Authenticated bool         `json:"authenticated"`
	Loading       bool         `json:"loading"`
	AvatarURL     string       `json:"avatarUrl"`
}

func main() {
	asJSON := flag.Bool("json", false, "print the raw session snapshot")
	flag.Parse()

	addr := os.Getenv("AGENT_ADDR")
	if addr == "" {
		addr = "http://127.0.0.1:5801"
	}

	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(addr, "/")+"/api/v1/session", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "whoami: %v\n", err)
		os.Exit(2)
	}
	// remote-UI deployments check bearer tokens on the session surface
	if tok := os.Getenv("AGENT_TOKEN"); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "whoami: agent unreachable at %s: %v\n", addr, err)
		os.Exit(2)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "whoami: agent returned %s\n", resp.Status)
		os.Exit(2)
	}

	var view sessionView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		fmt.Fprintf(os.Stderr, "whoami: bad response: %v\n", err)
		os.Exit(2)
	}

	if *asJSON {
		out, _ := json.MarshalIndent(view, "", "  ")
		fmt.Println(string(out))
		if !view.Authenticated {
			os.Exit(1)
		}
		return
	}

	if view.Loading {
		fmt.Fprintln(os.Stderr, "whoami: agent is still restoring the session")
		os.Exit(1)
	}
	if !view.Authenticated || view.User == nil {
		fmt.Fprintln(os.Stderr, "whoami: not signed in")
		os.Exit(1)
	}

	u := view.User
	fmt.Printf("%s <%s> role=%s\n", u.FullName, u.Email, u.Role)
	if u.CompanyName != "" {
		fmt.Printf("company: %s\n", u.CompanyName)
	}
	if len(u.Permissions) > 0 {
		fmt.Printf("permissions: %s\n", strings.Join(u.Permissions, ", "))
	}
}
