package node

import (
	"fmt"
	"os"

	"go.dedis.ch/custody/cli"
)

func ExampleCLIBuilder_Build() {
	builder := NewBuilder(exampleController{})

	cmd := builder.SetCommand("version")

	cmd.SetFlags(cli.StringFlag{
		Name:  "prefix",
		Usage: "set the prefix",
		Value: "custody",
	})

	// This action runs on the CLI process. The actions created by the
	// controllers with MakeAction run on the daemon once it is started.
	cmd.SetAction(func(flags cli.Flags) error {
		fmt.Printf("%s v1", flags.String("prefix"))
		return nil
	})

	app := builder.Build()

	err := app.Run([]string{os.Args[0], "version", "--prefix", "ledger"})
	if err != nil {
		panic("app failed: " + err.Error())
	}

	// Output: ledger v1
}

// Hello is an example of a component injected and resolved on the daemon.
type Hello interface {
	SayTo(name string)
}

type simpleHello struct{}

func (simpleHello) SayTo(name string) {
	fmt.Printf("Hello, %s!", name)
}

// helloAction is an example of an action executed on the daemon.
//
// - implements node.ActionTemplate
type helloAction struct{}

// Execute implements node.ActionTemplate. It resolves the hello component and
// says hello to the name of the flag.
func (tmpl helloAction) Execute(ctx Context) error {
	var hello Hello
	err := ctx.Injector.Resolve(&hello)
	if err != nil {
		return err
	}

	hello.SayTo(ctx.Flags.String("name"))

	return nil
}

// exampleController is an example of an initializer. It defines its command
// and injects its component when the daemon starts.
//
// - implements node.Initializer
type exampleController struct{}

// SetCommands implements node.Initializer.
func (exampleController) SetCommands(builder Builder) {
	cmd := builder.SetCommand("hello")
	cmd.SetDescription("say hello")
	cmd.SetFlags(cli.StringFlag{
		Name:  "name",
		Usage: "set the name",
		Value: "Bob",
	})
	cmd.SetAction(builder.MakeAction(helloAction{}))
}

// OnStart implements node.Initializer. It injects the hello component.
func (exampleController) OnStart(flags cli.Flags, inj Injector) error {
	inj.Inject(simpleHello{})

	return nil
}

// OnStop implements node.Initializer.
func (exampleController) OnStop(Injector) error {
	return nil
}
