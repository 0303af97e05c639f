package app

// CliOptions 可由 App 加载的命令行配置。
type CliOptions interface {
	// Flags 返回分组后的 flag 集合。
	Flags() NamedFlagSets
	// Complete 补全默认值与环境变量。
	Complete() error
	// Validate 校验配置。
	Validate() error
}
