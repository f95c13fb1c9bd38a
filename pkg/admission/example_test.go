package admission_test

import (
	"context"
	"fmt"
	"time"

	"github.com/manenim/gateway-admission/pkg/admission"
)

func ExampleService() {
	registry := admission.NewRegistry()
	registry.MustRegister(admission.Policy{
		Name:        "login",
		Window:      time.Minute,
		MaxRequests: 3,
	})

	svc := admission.New(registry)
	defer svc.Close()

	for i := 0; i < 4; i++ {
		dec, err := svc.Check(context.Background(), "login", "user_123")
		if err != nil {
			panic(err)
		}
		fmt.Printf("allowed=%t remaining=%d\n", dec.Allowed, dec.Remaining)
	}
	// Output:
	// allowed=true remaining=2
	// allowed=true remaining=1
	// allowed=true remaining=0
	// allowed=false remaining=0
}
