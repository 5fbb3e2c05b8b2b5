package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// LogEntry matches the Zap JSON structure. The dispatch publisher logs
// task/machine, the engine logs task_id/machine_id.
type LogEntry struct {
	Level       string `json:"level"`
	Msg         string `json:"msg"`
	TaskID      string `json:"task_id"`
	MachineID   string `json:"machine_id"`
	Task        string `json:"task"`
	Machine     string `json:"machine"`
	Strategy    string `json:"strategy"`
	Assignments int    `json:"assignments"`
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[37m"
)

func main() {
	fmt.Println(colorCyan + "🔎 Shop Floor Activity Monitor Starting..." + colorReset)
	fmt.Println(colorGray + "Listening for scheduling events from the engine..." + colorReset)
	fmt.Println("-------------------------------------------------------------------------")

	cmd := exec.Command("docker", "compose", "logs", "-f", "scheduler")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		fmt.Printf("Error creating stdout pipe: %v\n", err)
		return
	}

	if err := cmd.Start(); err != nil {
		fmt.Printf("Error starting docker logs command: %v\n", err)
		return
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()

		// Compose log format: "service_name | {JSON}"
		parts := strings.SplitN(line, "|", 2)
		if len(parts) < 2 {
			continue
		}

		jsonPayload := strings.TrimSpace(parts[1])

		var entry LogEntry
		if err := json.Unmarshal([]byte(jsonPayload), &entry); err != nil {
			// Not a JSON log or different format, ignore
			continue
		}

		prettify(entry)
	}

	if err := cmd.Wait(); err != nil {
		fmt.Printf("Docker command exited: %v\n", err)
	}
}

func prettify(entry LogEntry) {
	msg := entry.Msg

	switch {
	case strings.Contains(msg, "Task queued"):
		fmt.Printf("📥 "+colorYellow+"Queued:"+colorReset+"     %s\n", entry.TaskID)
	case strings.Contains(msg, "Task assigned"):
		fmt.Printf("⚙️  "+colorBlue+"Assigned:"+colorReset+"   %s -> %s\n", entry.TaskID, entry.MachineID)
	case strings.Contains(msg, "Published assignment"):
		fmt.Printf("📡 "+colorCyan+"Dispatched:"+colorReset+" %s -> %s\n", entry.Task, entry.Machine)
	case strings.Contains(msg, "Task completed"):
		fmt.Printf("✅ "+colorGreen+"Completed:"+colorReset+"  %s\n", entry.TaskID)
	case strings.Contains(msg, "Scheduling pass committed"):
		fmt.Printf("🧮 "+colorGray+"Pass:"+colorReset+"       %d assigned via %s\n", entry.Assignments, entry.Strategy)
	case entry.Level == "error":
		fmt.Printf("❌ "+colorRed+"ERROR:"+colorReset+" %s\n", msg)
	}
}
