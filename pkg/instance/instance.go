package instance

import "os"

const envWorkerID = "BIDDART_WORKER_ID"

// GetID identifies this process in logs. It prefers BIDDART_WORKER_ID and falls
// back to the hostname, which is the pod name on Cloud Run and GKE.
func GetID() string {
	if id := os.Getenv(envWorkerID); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
