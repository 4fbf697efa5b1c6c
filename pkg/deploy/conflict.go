package deploy

import (
	"context"
	"fmt"

	"github.com/cuemby/wharf/pkg/cluster"
	"github.com/cuemby/wharf/pkg/manifest"
)

// DomainConflict is a host already routed by an ingress in another namespace
type DomainConflict struct {
	Host      string
	Namespace string
	Ingress   string
}

func (c *DomainConflict) String() string {
	return fmt.Sprintf("host %s is already used by ingress %s/%s", c.Host, c.Namespace, c.Ingress)
}

// CheckDomainConflict returns the first declared host claimed by an ingress
// outside namespace. A nil or empty ingress config makes no cluster calls.
func CheckDomainConflict(ctx context.Context, mgr cluster.Manager, kubeContext, namespace string, ingress *manifest.IngressConfig) (*DomainConflict, error) {
	hosts := ingress.Hosts()
	if len(hosts) == 0 {
		return nil, nil
	}

	existing, err := mgr.GetAllIngresses(ctx, kubeContext)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingresses: %w", err)
	}

	for _, host := range hosts {
		for _, ing := range existing {
			if ing.Namespace == namespace {
				continue
			}
			for _, rule := range ing.Spec.Rules {
				if rule.Host == host {
					return &DomainConflict{Host: host, Namespace: ing.Namespace, Ingress: ing.Name}, nil
				}
			}
		}
	}
	return nil, nil
}
