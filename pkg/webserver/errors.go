package webserver

import "fmt"

func errUnknownJob(jobid string) error {
	return fmt.Errorf("webserver: unknown job %q", jobid)
}

func errMissingParam(name string) error {
	return fmt.Errorf("webserver: missing query parameter %q", name)
}
