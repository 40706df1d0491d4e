package kube

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"
)

const tunnelReadyTimeout = 10 * time.Second

// Tunnel forwards a local port to a service's backing pod. It is how an
// out-of-cluster run reaches a Prometheus that has no external endpoint.
type Tunnel struct {
	service    string
	namespace  string
	localPort  int
	remotePort int

	client     kubernetes.Interface
	restConfig *rest.Config

	mu       sync.Mutex
	stopChan chan struct{}
	open     bool
}

// NewTunnel creates a tunnel to namespace/service, forwarding localPort
// to remotePort on one of the service's running pods.
func NewTunnel(client kubernetes.Interface, restConfig *rest.Config, namespace, service string, localPort, remotePort int) *Tunnel {
	return &Tunnel{
		service:    service,
		namespace:  namespace,
		localPort:  localPort,
		remotePort: remotePort,
		client:     client,
		restConfig: restConfig,
	}
}

// URL is the local endpoint the tunnel serves once open.
func (t *Tunnel) URL() string {
	return fmt.Sprintf("http://localhost:%d", t.localPort)
}

// Open selects a running pod behind the service and starts forwarding.
// It returns once the forward is ready or the ready wait times out.
func (t *Tunnel) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open {
		return fmt.Errorf("tunnel already open")
	}

	svc, err := t.client.CoreV1().Services(t.namespace).Get(ctx, t.service, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("get service %s/%s: %w", t.namespace, t.service, err)
	}

	pods, err := t.client.CoreV1().Pods(t.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: metav1.FormatLabelSelector(&metav1.LabelSelector{MatchLabels: svc.Spec.Selector}),
		FieldSelector: "status.phase=Running",
	})
	if err != nil {
		return fmt.Errorf("list pods for service %s/%s: %w", t.namespace, t.service, err)
	}
	if len(pods.Items) == 0 {
		return fmt.Errorf("no running pods behind service %s/%s", t.namespace, t.service)
	}

	req := t.client.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(t.namespace).
		Name(pods.Items[0].Name).
		SubResource("portforward")

	transport, upgrader, err := spdy.RoundTripperFor(t.restConfig)
	if err != nil {
		return fmt.Errorf("spdy transport: %w", err)
	}
	dialer := spdy.NewDialer(upgrader, &http.Client{Transport: transport}, "POST", req.URL())

	stopChan := make(chan struct{}, 1)
	readyChan := make(chan struct{}, 1)
	ports := []string{fmt.Sprintf("%d:%d", t.localPort, t.remotePort)}

	fw, err := portforward.New(dialer, ports, stopChan, readyChan, io.Discard, io.Discard)
	if err != nil {
		return fmt.Errorf("create port-forward: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- fw.ForwardPorts()
	}()

	select {
	case <-readyChan:
		t.stopChan = stopChan
		t.open = true
		return nil
	case err := <-errChan:
		return fmt.Errorf("port-forward: %w", err)
	case <-ctx.Done():
		close(stopChan)
		return ctx.Err()
	case <-time.After(tunnelReadyTimeout):
		close(stopChan)
		return fmt.Errorf("timeout waiting for port-forward to %s/%s", t.namespace, t.service)
	}
}

// Close stops the forward. Closing a tunnel that never opened is a no-op.
func (t *Tunnel) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return
	}
	close(t.stopChan)
	t.stopChan = nil
	t.open = false
}
