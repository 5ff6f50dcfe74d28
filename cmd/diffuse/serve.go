package main

import (
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/coretensor/diffuse/httpapi"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP image generation server",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			return runServe(addr)
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:11430", "Address to listen on")
	return cmd
}

func runServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("diffuse: listen on %s: %w", addr, err)
	}

	r := gin.Default()
	registry := httpapi.NewModelRegistry()
	httpapi.RegisterRoutes(r, registry)

	fmt.Printf("Listening on %s\n", addr)
	s := &http.Server{Handler: r}
	return s.Serve(ln)
}
