// Package registrar registers the running service with the consul agent so
// upstream bots can discover it.
package registrar

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/hashicorp/consul/api"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Options describes the service instance to register.
type Options struct {
	// ConsulAddr is the agent address, e.g. "127.0.0.1:8500".
	ConsulAddr  string
	ServiceName string
	// AdvertiseIP is the address peers reach the service on. Empty falls
	// back to the first non-loopback interface address.
	AdvertiseIP string
	Port        int
	HealthPath  string
	Tags        []string
}

// Registrar holds a consul registration.
type Registrar struct {
	agent *api.Agent
	id    string
	reg   *api.AgentServiceRegistration
}

// New creates a Registrar for opts. It does not contact the agent.
func New(opts Options) (*Registrar, error) {
	client, err := api.NewClient(&api.Config{Address: opts.ConsulAddr})
	if err != nil {
		return nil, eris.Wrap(err, "registrar: new consul client")
	}

	ip := opts.AdvertiseIP
	if ip == "" {
		ip = localIP()
	}
	path := opts.HealthPath
	if path == "" {
		path = "/health"
	}
	host, _ := os.Hostname()
	id := fmt.Sprintf("%s-%s-%d", opts.ServiceName, host, opts.Port)

	return &Registrar{
		agent: client.Agent(),
		id:    id,
		reg: &api.AgentServiceRegistration{
			ID:      id,
			Name:    opts.ServiceName,
			Address: ip,
			Port:    opts.Port,
			Tags:    opts.Tags,
			Check: &api.AgentServiceCheck{
				HTTP:                           "http://" + net.JoinHostPort(ip, strconv.Itoa(opts.Port)) + path,
				Interval:                       "10s",
				Timeout:                        "5s",
				DeregisterCriticalServiceAfter: "1m",
			},
		},
	}, nil
}

// ID returns the registered service id.
func (r *Registrar) ID() string { return r.id }

// Register adds the service to the agent.
func (r *Registrar) Register() error {
	if err := r.agent.ServiceRegister(r.reg); err != nil {
		return eris.Wrapf(err, "registrar: register %s", r.id)
	}
	zap.L().Info("registered with consul",
		zap.String("service_id", r.id),
		zap.String("address", r.reg.Address),
		zap.Int("port", r.reg.Port),
	)
	return nil
}

// Deregister removes the service from the agent.
func (r *Registrar) Deregister() error {
	if err := r.agent.ServiceDeregister(r.id); err != nil {
		return eris.Wrapf(err, "registrar: deregister %s", r.id)
	}
	zap.L().Info("deregistered from consul", zap.String("service_id", r.id))
	return nil
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && !ipn.IP.IsLoopback() && ipn.IP.To4() != nil {
			return ipn.IP.String()
		}
	}
	return "127.0.0.1"
}
